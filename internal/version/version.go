package version

// Version is the tunnelbench release version.
const Version = "0.4.0"
