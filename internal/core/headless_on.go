//go:build headless

package core

// HeadlessBuild strips the dynamics thread entirely.
const HeadlessBuild = true
