package cadence

// Version is the library version. Release builds override it with
// -ldflags "-X github.com/aretw0/cadence.Version=...".
var Version = "0.1.0-dev"
