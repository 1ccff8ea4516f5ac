// Package config provides server settings for webpad.
//
// The config package handles:
//   - Built-in defaults for every setting
//   - Loading overrides from a JSON settings file
//   - Validation before the server starts
//   - Writing a settings file for editing
//
// Settings Format:
//
// The settings file is a JSON object. Any field may be omitted and keeps its
// default. Durations are Go duration strings ("60s", "1m30s") or a number of
// seconds.
//
//	{
//	  "host": "0.0.0.0",
//	  "port": 8080,
//	  "public_dir": "public",
//	  "driver": "uinput",
//	  "connect_rate": 5,
//	  "ngrok": {"enabled": true, "domain": "pad.example.ngrok.app"}
//	}
//
// Command line flags and environment variables are applied on top of the
// file by the webpad command.
package config
