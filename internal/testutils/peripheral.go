package testutils

import (
	"bytes"
	"context"
	"sync"

	"github.com/go-ble/ble"
	"github.com/srg/tp357/internal/testutils/mocks"
	"github.com/srg/tp357/internal/tp357"
	"github.com/stretchr/testify/mock"
)

// TP357Peripheral simulates a TP357 behind a mocked go-ble device: it
// advertises while scanned and streams history notifications once a request
// is written to it.
//
//	dev := testutils.NewTP357Peripheral().
//	    WithAdvertisements(testutils.CreateTP357Advertisement(addr, 215, 47, 2).Build()).
//	    WithHistory(tp357.ModeDay, testutils.NewHistoryBuilder(tp357.ModeDay).Frames(2).End().Build()...).
//	    Build()
//	goble.DeviceFactory = func() (ble.Device, error) { return dev, nil }
type TP357Peripheral struct {
	advertisements []ble.Advertisement
	history        map[byte][][]byte
	scanErr        error
	dialFailures   int
	dialErr        error
	subscribeErr   error
	unsubscribeErr error
	linkDrops      int

	mu         sync.Mutex
	handler    ble.NotificationHandler
	link       chan struct{}
	linkClosed bool
	delivery   sync.WaitGroup

	Device *mocks.MockDevice
	Client *mocks.MockClient
}

func NewTP357Peripheral() *TP357Peripheral {
	return &TP357Peripheral{
		history: make(map[byte][][]byte),
	}
}

// WithAdvertisements sets what every scan session hears before it idles.
func (p *TP357Peripheral) WithAdvertisements(advs ...ble.Advertisement) *TP357Peripheral {
	p.advertisements = append(p.advertisements, advs...)
	return p
}

// WithHistory sets the notifications sent in answer to mode's request. A
// mode without history is answered with a bare end-of-stream marker; pass
// frames without an end marker to simulate a device that never finishes.
func (p *TP357Peripheral) WithHistory(mode tp357.Mode, frames ...[]byte) *TP357Peripheral {
	cmd, err := tp357.NewQueryCommand(mode, zeroTime())
	if err != nil {
		panic(err)
	}
	p.history[cmd.Opcode()] = frames
	return p
}

// WithScanError makes every scan fail immediately with err.
func (p *TP357Peripheral) WithScanError(err error) *TP357Peripheral {
	p.scanErr = err
	return p
}

// WithDialFailures makes the first n dials fail with err.
func (p *TP357Peripheral) WithDialFailures(n int, err error) *TP357Peripheral {
	p.dialFailures = n
	p.dialErr = err
	return p
}

// WithSubscribeError makes every subscription fail with err.
func (p *TP357Peripheral) WithSubscribeError(err error) *TP357Peripheral {
	p.subscribeErr = err
	return p
}

// WithUnsubscribeError makes every unsubscription fail with err.
func (p *TP357Peripheral) WithUnsubscribeError(err error) *TP357Peripheral {
	p.unsubscribeErr = err
	return p
}

// WithLinkDrops makes the first n history requests lose the link after the
// data frames, before the end-of-stream marker is sent.
func (p *TP357Peripheral) WithLinkDrops(n int) *TP357Peripheral {
	p.linkDrops = n
	return p
}

// Profile returns the GATT profile the simulated device exposes.
func Profile() *ble.Profile {
	return &ble.Profile{
		Services: []*ble.Service{
			{
				UUID: ble.MustParse("00010203-0405-0607-0809-0a0b0c0d1910"),
				Characteristics: []*ble.Characteristic{
					ble.NewCharacteristic(ble.MustParse(tp357.NotifyCharUUID)),
					ble.NewCharacteristic(ble.MustParse(tp357.WriteCharUUID)),
				},
			},
		},
	}
}

// Build wires the mocks. The returned device can be handed out by
// goble.DeviceFactory.
func (p *TP357Peripheral) Build() *mocks.MockDevice {
	p.Device = &mocks.MockDevice{}
	p.Client = &mocks.MockClient{}

	scan := p.Device.On("Scan", mock.Anything, mock.Anything, mock.Anything)
	if p.scanErr != nil {
		scan.Return(p.scanErr)
	} else {
		scan.Run(func(args mock.Arguments) {
			ctx := args.Get(0).(context.Context)
			h := args.Get(2).(ble.AdvHandler)
			for _, adv := range p.advertisements {
				h(adv)
			}
			<-ctx.Done()
		}).Return(context.Canceled)
	}

	if p.dialFailures > 0 {
		p.Device.On("Dial", mock.Anything, mock.Anything).Return(nil, p.dialErr).Times(p.dialFailures)
	}
	p.Device.On("Dial", mock.Anything, mock.Anything).Run(func(mock.Arguments) {
		p.connect()
	}).Return(p.Client, nil).Maybe()
	p.Device.On("Stop").Return(nil).Maybe()

	p.Client.On("DiscoverProfile", true).Return(Profile(), nil).Maybe()
	p.Client.On("Subscribe", mock.Anything, false, mock.Anything).Run(func(args mock.Arguments) {
		if p.subscribeErr != nil {
			return
		}
		p.mu.Lock()
		p.handler = args.Get(2).(ble.NotificationHandler)
		p.mu.Unlock()
	}).Return(p.subscribeErr).Maybe()
	p.Client.On("WriteCharacteristic", mock.Anything, mock.Anything, true).Run(func(args mock.Arguments) {
		p.answer(args.Get(1).([]byte))
	}).Return(nil).Maybe()
	p.Client.On("Unsubscribe", mock.Anything, false).Run(func(mock.Arguments) {
		p.mu.Lock()
		p.handler = nil
		p.mu.Unlock()
	}).Return(p.unsubscribeErr).Maybe()
	p.Client.On("CancelConnection").Run(func(mock.Arguments) {
		p.dropLink()
	}).Return(nil).Maybe()
	p.Client.On("Disconnected").Return(func() <-chan struct{} {
		p.mu.Lock()
		defer p.mu.Unlock()
		return p.link
	}).Maybe()

	return p.Device
}

// answer streams the history for the written request on its own goroutine,
// like a radio stack delivering notifications.
func (p *TP357Peripheral) answer(request []byte) {
	if len(request) == 0 {
		return
	}

	frames, ok := p.history[request[0]]
	if !ok {
		frames = [][]byte{tp357.PackEndOfStream()}
	}

	p.mu.Lock()
	h := p.handler
	drop := p.linkDrops > 0
	if drop {
		p.linkDrops--
	}
	p.mu.Unlock()
	if h == nil {
		return
	}

	p.delivery.Add(1)
	go func() {
		defer p.delivery.Done()
		for _, f := range frames {
			if drop && bytes.Equal(f, tp357.PackEndOfStream()) {
				break
			}
			h(append([]byte(nil), f...))
		}
		if drop {
			p.dropLink()
		}
	}()
}

// connect opens a fresh link for a successful dial.
func (p *TP357Peripheral) connect() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.link = make(chan struct{})
	p.linkClosed = false
}

func (p *TP357Peripheral) dropLink() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.link != nil && !p.linkClosed {
		close(p.link)
		p.linkClosed = true
	}
}

// WaitDelivered blocks until every notification stream has been sent.
func (p *TP357Peripheral) WaitDelivered() {
	p.delivery.Wait()
}
