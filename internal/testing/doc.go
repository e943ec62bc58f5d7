// Package testing contains helpers shared by module tests: a fake engine
// host, a YAML-backed config builder and artifact assertions.
package testing

const (
	testDirPermissions  = 0o750
	testFilePermissions = 0o600
)
