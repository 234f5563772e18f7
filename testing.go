package hound

import "context"

// MockDriver is a Driver implementation whose behavior is supplied as
// function fields, for use in tests of code that depends on the Driver
// interface without needing a real sensor behind it. Any field left nil
// falls back to a harmless default (no-op, or zero value).
type MockDriver struct {
	InitFunc       func(ctx context.Context, path string, args []string) error
	StartFunc      func() error
	StopFunc       func() error
	DestroyFunc    func() error
	DeviceNameFunc func() string
	DataDescFunc   func() ([]DriverDescriptor, error)
	SetDataFunc    func(reqs RequestList) error
	FDFunc         func() (int, bool)
	ParseFunc      func(data []byte) ([]Record, error)
	PollFunc       func(req DataRequest) ([]Record, error)
}

func (m *MockDriver) Init(ctx context.Context, path string, args []string) error {
	if m.InitFunc != nil {
		return m.InitFunc(ctx, path, args)
	}
	return nil
}

func (m *MockDriver) DeviceName() string {
	if m.DeviceNameFunc != nil {
		return m.DeviceNameFunc()
	}
	return ""
}

func (m *MockDriver) Start() error {
	if m.StartFunc != nil {
		return m.StartFunc()
	}
	return nil
}

func (m *MockDriver) Stop() error {
	if m.StopFunc != nil {
		return m.StopFunc()
	}
	return nil
}

func (m *MockDriver) Destroy() error {
	if m.DestroyFunc != nil {
		return m.DestroyFunc()
	}
	return nil
}

func (m *MockDriver) DataDesc() ([]DriverDescriptor, error) {
	if m.DataDescFunc != nil {
		return m.DataDescFunc()
	}
	return nil, nil
}

func (m *MockDriver) SetData(reqs RequestList) error {
	if m.SetDataFunc != nil {
		return m.SetDataFunc(reqs)
	}
	return nil
}

func (m *MockDriver) FD() (int, bool) {
	if m.FDFunc != nil {
		return m.FDFunc()
	}
	return 0, false
}

func (m *MockDriver) Parse(data []byte) ([]Record, error) {
	if m.ParseFunc != nil {
		return m.ParseFunc(data)
	}
	return nil, nil
}

func (m *MockDriver) Poll(req DataRequest) ([]Record, error) {
	if m.PollFunc != nil {
		return m.PollFunc(req)
	}
	return nil, nil
}

var _ Driver = (*MockDriver)(nil)
