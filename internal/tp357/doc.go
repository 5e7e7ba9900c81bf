// Package tp357 implements the BLE application protocol of the ThermoPro
// TP357 thermo-hygrometer.
//
// Two data paths exist:
//
//   - live readings, decoded from the manufacturer-specific record of the
//     device's advertisements (Scanner);
//   - stored history, pulled over a GATT notification stream after writing
//     a mode-specific request to the device (Engine).
//
// Both paths share the binary codec (DecodeAdvertisement, DecodeNotification)
// and the mode table (NewQueryCommand). Client ties them to the radio gate
// and the retry policy.
package tp357
