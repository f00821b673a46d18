// Package confloader loads restore point configuration.
//
// Sources are layered with koanf, later ones overriding earlier ones:
//
//  1. Defaults already set in the target struct
//  2. A YAML configuration file
//  3. RESTOREPOINT_* environment variables
//  4. Overrides passed as a map, typically from command-line flags
//
// Watcher reports edits of the configuration file so a running daemon can
// reapply the settings that are safe to change live.
package confloader
