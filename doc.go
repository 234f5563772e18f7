// Command-line tooling and further examples live under cmd/; this file
// only documents the library's overall shape.
//
// A typical user registers one or more Driver implementations, brings up
// instances with InitDriver/StartDriver, and allocates a Context per
// consumer with AllocCtx to receive records through Read:
//
//	h := hound.New(nil)
//	h.Run()
//	defer h.Shutdown()
//
//	h.RegisterDriver("accel", myAccelDriver)
//	devID, _ := h.InitDriver(ctx, "accel", "/dev/accel0", "", "", nil)
//	h.StartDriver(ctx, devID)
//
//	cb := func(_ any, rec *hound.Record) { ... }
//	c, _ := h.AllocCtx(devID, hound.RequestList{{DataID: accelX, Period: hound.Period(time.Millisecond)}}, 0, cb, nil)
//	c.Start()
//	for {
//		if err := c.Read(ctx, 1); err != nil {
//			break
//		}
//	}
//	c.Stop()
//	c.Free()
package hound
