package dmesim

import (
	"sort"

	"github.com/mobiledgex/matchingengine/pkg/dme"
)

// towerLevel is the s2 cell level standing in for a cell tower's coverage
// area (roughly 10 km across).
const towerLevel = 10

// inventory indexes the configured apps and cloudlets. It is read-only
// after construction.
type inventory struct {
	apps      map[string]App // by dev/app/vers
	byName    map[string][]App
	cloudlets []Cloudlet
}

func newInventory(apps []App, cloudlets []Cloudlet) *inventory {
	inv := &inventory{
		apps:      make(map[string]App, len(apps)),
		byName:    make(map[string][]App, len(apps)),
		cloudlets: cloudlets,
	}
	for _, a := range apps {
		inv.apps[a.key()] = a
		inv.byName[a.AppName] = append(inv.byName[a.AppName], a)
	}
	return inv
}

func (inv *inventory) app(devName, appName, appVers string) (App, bool) {
	a, ok := inv.apps[App{DevName: devName, AppName: appName, AppVers: appVers}.key()]
	return a, ok
}

// instanceFQDN is the published hostname of app on cloudlet.
func instanceFQDN(app App, cl Cloudlet) string {
	return sanitize(app.AppName) + "." + cl.Name + "." + cl.CarrierName + ".mobiledgex.net"
}

func sanitize(name string) string {
	b := make([]byte, 0, len(name))
	for i := 0; i < len(name); i++ {
		switch c := name[i]; {
		case c >= 'a' && c <= 'z', c >= '0' && c <= '9', c == '-':
			b = append(b, c)
		case c >= 'A' && c <= 'Z':
			b = append(b, c+'a'-'A')
		}
	}
	return string(b)
}

func runs(cl Cloudlet, appName string) bool {
	for _, a := range cl.Apps {
		if a == appName {
			return true
		}
	}
	return false
}

// hosting returns the cloudlets of carrier (any carrier when empty) that
// run appName, nearest to loc first.
func (inv *inventory) hosting(appName, carrier string, loc dme.Loc) []dme.CloudletLocation {
	var out []dme.CloudletLocation
	for _, cl := range inv.cloudlets {
		if carrier != "" && cl.CarrierName != carrier {
			continue
		}
		if !runs(cl, appName) {
			continue
		}
		clLoc := cl.Location.Loc()
		entry := dme.CloudletLocation{
			CarrierName:  cl.CarrierName,
			CloudletName: cl.Name,
			GPSLocation:  &clLoc,
			Distance:     dme.DistanceKm(loc, clLoc),
		}
		for _, app := range inv.byName[appName] {
			entry.Appinstances = append(entry.Appinstances, dme.Appinstance{
				AppName: app.AppName,
				AppVers: app.AppVers,
				FQDN:    instanceFQDN(app, cl),
				Ports:   app.appPorts(),
			})
		}
		out = append(out, entry)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Distance < out[j].Distance })
	return out
}

// fqdns lists every app with the FQDNs of all its instances.
func (inv *inventory) fqdns() []dme.AppFqdn {
	keys := make([]string, 0, len(inv.apps))
	for k := range inv.apps {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	out := make([]dme.AppFqdn, 0, len(keys))
	for _, k := range keys {
		app := inv.apps[k]
		af := dme.AppFqdn{
			AppName:            app.AppName,
			DevName:            app.DevName,
			AppVers:            app.AppVers,
			AndroidPackageName: app.AndroidPackageName,
		}
		for _, cl := range inv.cloudlets {
			if runs(cl, app.AppName) {
				af.FQDNs = append(af.FQDNs, instanceFQDN(app, cl))
			}
		}
		out = append(out, af)
	}
	return out
}
