// Package discovery advertises scenebridge servers over mDNS and finds them
// from clients.
//
// A server started with discovery enabled registers the "_scenebridge._tcp"
// service with TXT records carrying its version and enabled features:
//
//	adv, err := discovery.Advertise("studio", 9876, discovery.TXT(version.Version, flags.Enabled()))
//	defer adv.Shutdown()
//
// Clients browse for it:
//
//	instances, err := discovery.NewScanner().Scan(ctx)
//	for _, inst := range instances {
//	    fmt.Println(inst.Name, inst.Address())
//	}
//
// Multicast must be allowed on the interface and UDP port 5353 must be open.
package discovery
