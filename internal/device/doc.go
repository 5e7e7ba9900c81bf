// Package device defines the transport contracts the TP357 protocol engine
// runs on, independent of any particular BLE stack.
//
// It provides:
//   - Advertisement and ScanningDevice for the broadcast listener
//   - Connector and Session for GATT notify/write exchanges
//   - the error taxonomy used by retry classification (ErrLinkFailure,
//     ErrTimeout, NotFoundError, ConnectionError)
package device
