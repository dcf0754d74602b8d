// Package discovery implements mDNS/DNS-SD discovery for Arbor devices.
//
// Devices advertise a single "_arbor._tcp" service in the local domain.
// The instance name defaults to the device ID, and two TXT records carry
// the identity a client needs before connecting:
//
//   - id: the device ID (required)
//   - proto: the Arbor protocol version the device speaks
//
// A device announces itself once its transport server is listening:
//
//	adv, err := discovery.NewAdvertiser(discovery.AdvertiserConfig{
//		DeviceID: "dev8047",
//		Port:     8614,
//	})
//	if err != nil {
//		return err
//	}
//	if err := adv.Announce(); err != nil {
//		return err
//	}
//	defer adv.Close()
//
// Clients browse the local network for devices, either collecting
// everything visible within a timeout or waiting for a specific device:
//
//	browser := discovery.NewBrowser(discovery.BrowserConfig{})
//	found, err := browser.Browse(ctx, 5*time.Second)
//	for _, f := range found {
//		fmt.Println(f.DeviceID, f.Addr())
//	}
package discovery
