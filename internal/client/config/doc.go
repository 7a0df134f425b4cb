// Package config loads runtime configuration for the Shopkeeper client.
//
// Sources & precedence
//
//  1. Built-in defaults (see (*Config).LoadDefaults).
//  2. Optional JSON file (see parseJson) selected via flags: -c or -config.
//  3. Command-line flags (see parseFlags), which override earlier values.
//
// Supported flags
//
//	-a string   base URL of the sync server HTTP API
//	-r string   host:port of the gRPC endpoint; when set, gRPC is used instead of HTTP
//	-f string   path of the local replica database file
//	-i int      online status check interval (seconds)
//	-y int      automatic sync interval (seconds)
//	-l string   log level
//
// # JSON schema
//
// Intervals use timex.Duration, so values can be either strings like "3s" or
// integer nanoseconds. Absent keys keep their defaults:
//
//	{
//	  "server_url": "http://127.0.0.1:8080",
//	  "grpc_addr": "",
//	  "database_path": "shopkeeper.db",
//	  "online_check_interval": "3s",
//	  "sync_interval": "30s",
//	  "request_timeout": "30s",
//	  "log_level": "info"
//	}
package config
