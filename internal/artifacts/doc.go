// Package artifacts owns the per-run artifacts directory: it creates the
// directory, hands out collision-free file names and absorbs files
// produced elsewhere.
package artifacts
