// Package config loads the two kinds of configuration the degraphmalizer
// uses.
//
// Type configuration declares, per target index, which source (index, type)
// feeds each target type and how source documents are mapped. It is written
// in CUE, validated against an embedded schema, and served through a
// Provider that can be reloaded while the engine runs. A failed reload keeps
// serving the previous configuration.
//
// Engine configuration (worker pool size, tree limits, retry policy) is a
// small YAML file read once at startup.
package config
