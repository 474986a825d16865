package core

// Stamped by the release pipeline.
var (
	AppVersion     = "0.9.0"
	AppBuildNumber = 412
)
