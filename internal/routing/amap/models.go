package amap

import "github.com/tohomedistance/tohomedistance/internal/routing"

// apiVersion selects the response envelope layout.
type apiVersion int

const (
	versionV3 apiVersion = iota + 3
	versionV4
)

// Envelope fields.
const (
	v3StatusKey     = "status"
	v3StatusSuccess = "1"
	v3InfoKey       = "info"
	v3InfoCodeKey   = "infocode"

	v4ErrCodeKey = "errcode"
	v4ErrMsgKey  = "errmsg"

	distanceKey = "distance"
	durationKey = "duration"
)

// infoCodeInvalidKey is returned by the IP endpoint for an unknown key.
const infoCodeInvalidKey = "10001"

// keyValidationPath is queried with only the key to check that it is accepted.
const keyValidationPath = "/v3/ip"

// endpoint describes how a mode is requested and where its first path lives.
type endpoint struct {
	path     string
	version  apiVersion
	pathsKey string
}

var endpoints = map[routing.Mode]endpoint{
	routing.ModeWalking:   {path: "/v3/direction/walking", version: versionV3, pathsKey: "route.paths"},
	routing.ModeTransit:   {path: "/v3/direction/transit/integrated", version: versionV3, pathsKey: "route.transits"},
	routing.ModeDriving:   {path: "/v3/direction/driving", version: versionV3, pathsKey: "route.paths"},
	routing.ModeBicycling: {path: "/v4/direction/bicycling", version: versionV4, pathsKey: "data.paths"},
}

// EndpointPath returns the request path for mode, or false for an unknown mode.
func EndpointPath(mode routing.Mode) (string, bool) {
	ep, ok := endpoints[mode]
	return ep.path, ok
}
