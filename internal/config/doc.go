// Package config provides the configuration of the stepdb debugger.
//
// Configuration is organized in layers with higher layers overriding lower:
//
//	┌─────────────────────────────┐
//	│  4. Command Line Flags      │  ← Highest priority
//	├─────────────────────────────┤
//	│  3. Environment Variables   │  ← STEPDB_LOG_LEVEL, ...
//	├─────────────────────────────┤
//	│  2. Configuration File      │  ← ~/.config/stepdb/config.toml
//	├─────────────────────────────┤
//	│  1. Built-in Defaults       │  ← Lowest priority
//	└─────────────────────────────┘
//
// # Basic Usage
//
//	cfg := config.New(config.WithConfigFile(path))
//	if err := cfg.Set("log.level", "debug"); err != nil {
//	    return err
//	}
//	if err := cfg.Load(ctx); err != nil {
//	    return err
//	}
//	dbg := cfg.Debugger()
//	fmt.Println(dbg.BreakpointsFile)
//
// # Configuration Files
//
// The file is TOML or YAML, chosen by extension. Without an explicit file,
// config.toml, config.yaml and config.yml are tried in the user
// configuration directory; finding none is not an error.
//
//	[debugger]
//	breakpointsFile = "~/.config/stepdb/saved-breakpoints"
//	saveBreakpoints = true
//
//	[source]
//	watch = true
//	contextLines = 5
//
//	[log]
//	level = "info"
//	file = ""
//
//	[ui]
//	color = "auto"
//
// # Environment Variables
//
// STEPDB_SECTION_SETTING_NAME sets section.settingName, so
// STEPDB_SOURCE_CONTEXT_LINES sets source.contextLines. STEPDB_BREAKPOINTS
// and STEPDB_COLOR are shorthands for debugger.breakpointsFile and ui.color.
//
// # Validation
//
// Load validates the merged result. Every problem is reported as a
// *ValidationError; ValidationErrors extracts them from the combined error.
package config
