// Package discovery advertises the gateway on the local network over mDNS.
//
// The service is published as _webthing._tcp with a TXT record "path=/"
// pointing at the Thing (or Thing listing) root, plus "tls=1" when the API
// is served over HTTPS. Gateways and browsers that speak the Web Thing API
// find the server without configuration.
//
// # Usage
//
//	adv, err := discovery.Start(discovery.Options{
//	    Instance: "Living Room Lamp",
//	    Port:     8080,
//	})
//	if err != nil { ... }
//	defer adv.Stop()
package discovery
