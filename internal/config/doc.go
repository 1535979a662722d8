// Package config handles configuration loading for qrmax.
//
// # Overview
//
// Configuration is optional. Without a file every value comes from Default,
// which mirrors admission.DefaultLimits. A YAML file only needs the keys it
// wants to change.
//
// # Environment Variable Expansion
//
// Values can reference environment variables:
//
//	upload:
//	  userhash: "${CATBOX_USERHASH}"
//
// # Configuration Sections
//
//	logging:
//	  level: "info"    # debug, info, warn, error
//	  format: "text"   # text, json
//
//	limits:
//	  max_content_length: 2048
//	  max_inline_size: 10485760
//	  max_file_size: 5242880
//	  max_image_dimension: 2048
//
//	render:
//	  min_size: 100
//	  recovery_level: "medium"   # low, medium, high, highest
//	  foreground: "#000000"
//	  background: "#ffffff"
//
//	fetch:
//	  timeout: "10s"
//	  user_agent: "qrmax/1.0"
//	  allowed_domains: ["catbox.moe", "files.catbox.moe"]
//	  image_extensions: [".png", ".jpg", ".jpeg", ".gif", ".webp"]
//
//	upload:
//	  endpoint: "https://catbox.moe/user/api.php"
//	  host: "catbox.moe"
//	  timeout: "30s"
//
//	telemetry:
//	  otlp_endpoint: ""   # host:port of an OTLP/HTTP collector
//	  service_name: "qrmax"
package config
