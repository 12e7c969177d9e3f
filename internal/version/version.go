package version

// Version is the current version of PureConnect.
// Override at build time with:
//
//	go build -ldflags="-X 'github.com/marymwortman-lang/PureConnect/internal/version.Version=v1.0.0'"
var Version = "dev"
