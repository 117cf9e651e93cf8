package version

// Version is set at build time with -ldflags "-X github.com/memohai/trackcard/internal/version.Version=...".
var Version = "dev"
