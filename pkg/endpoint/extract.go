// Package endpoint resolves the network endpoints of a deployed
// release from the resource listing its deployment proxy reports, and
// substitutes them into endpoint URL templates.
package endpoint

import (
	"regexp"
	"strconv"
	"strings"
)

const (
	// SectionMarker starts the service listing in a release's
	// resource dump, e.g. "==> v1/Service".
	SectionMarker = "v1/Service"
	// BoundaryMarker starts the next resource section.
	BoundaryMarker = "==>"

	// NoAddress is printed for services without an external address.
	NoAddress = "<none>"
	// NodeAddress is printed for services exposed on every node;
	// the cluster host stands in for it.
	NodeAddress = "<nodes>"

	// Null replaces placeholders nothing resolves to.
	Null = "null"

	columns    = 5
	colName    = 0
	colExtIP   = 2
	colPorts   = 3
	portSep    = ","
	portMapSep = ":"
	protoSep   = "/"
)

var placeholder = regexp.MustCompile(`\{([^{}]*)\}`)

// Service is one row of the service listing, reduced to what
// endpoint templates can refer to.
type Service struct {
	Name    string
	Address string
	Ports   []string
}

// Keys returns the replacement keys and values recorded for the
// service: "{name}:ip" and "{name}:port:{i}" for each port.
func (s Service) Keys() map[string]string {
	keys := map[string]string{s.Name + ":ip": s.Address}
	for i, port := range s.Ports {
		keys[s.Name+":port:"+strconv.Itoa(i)] = port
	}
	return keys
}

// Services parses the service section of a resource listing. The
// instance id is removed from service names, so that templates can
// refer to services by their chart-given names. The boolean reports
// whether the listing has a service section at all.
func Services(resources, instanceID, clusterHost string) ([]Service, bool) {
	begin := strings.Index(resources, SectionMarker)
	if begin < 0 {
		return nil, false
	}
	section := resources[begin:]
	if end := strings.Index(section, BoundaryMarker); end >= 0 {
		section = section[:end]
	}

	words := strings.Fields(section)
	var services []Service
	// words[0] is the marker itself, followed by one header row
	for i := 1 + columns; i+columns <= len(words); i += columns {
		row := words[i : i+columns]

		address := row[colExtIP]
		if address == NoAddress {
			continue
		}
		ports := parsePorts(row[colPorts])
		if len(ports) == 0 {
			continue
		}
		if address == NodeAddress {
			address = clusterHost
		}

		name := row[colName]
		if instanceID != "" {
			name = strings.Replace(name, instanceID, "", -1)
		}
		services = append(services, Service{
			Name:    name,
			Address: address,
			Ports:   ports,
		})
	}
	return services, true
}

// parsePorts reads a PORT(S) column like "80:30080/TCP,443:30443/TCP"
// and returns the exposed ports ("30080", "30443"). Entries without a
// port mapping are not exposed and are left out.
func parsePorts(column string) []string {
	var ports []string
	for _, entry := range strings.Split(column, portSep) {
		idx := strings.Index(entry, portMapSep)
		if idx < 0 {
			continue
		}
		port := entry[idx+1:]
		if p := strings.Index(port, protoSep); p >= 0 {
			port = port[:p]
		}
		if port == "" {
			continue
		}
		ports = append(ports, port)
	}
	return ports
}

// Resolve replaces every {placeholder} in each template with the
// matching value, or with "null" when there is none.
func Resolve(templates map[string]string, values map[string]string) map[string]string {
	resolved := make(map[string]string, len(templates))
	for name, tmpl := range templates {
		resolved[name] = placeholder.ReplaceAllStringFunc(tmpl, func(m string) string {
			if v, ok := values[m[1:len(m)-1]]; ok {
				return v
			}
			return Null
		})
	}
	return resolved
}

// Extract resolves the endpoint templates of a release against the
// resource listing reported for it. A listing without a service
// section resolves to an empty map: the release has no endpoints yet.
func Extract(resources, instanceID, clusterHost string, templates map[string]string) map[string]string {
	services, ok := Services(resources, instanceID, clusterHost)
	if !ok {
		return map[string]string{}
	}
	values := map[string]string{}
	for _, svc := range services {
		for k, v := range svc.Keys() {
			values[k] = v
		}
	}
	return Resolve(templates, values)
}
