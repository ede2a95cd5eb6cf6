// Package config provides configuration for the cstm command line tools.
//
// A single Config structure covers logging, the CSTM writer and reader, CSV
// handling, export compression, metrics and tracing. Values are layered:
//
//  1. Default()
//  2. a YAML file, with ${VAR_NAME} references substituted from the
//     environment before parsing
//  3. CSTM_* environment variables, with dots in keys replaced by
//     underscores (CSTM_CSV_NULL_TOKEN overrides csv.null_token)
//
// # Usage
//
//	cfg, err := config.Load("cstm.yaml")
//	if err != nil {
//		return err
//	}
//	level, _ := compression.ParseLevel(cfg.Writer.CompressionLevel)
//
// Save writes a Config back out as YAML, which is a convenient way to
// produce a starting file:
//
//	_ = config.Save("cstm.yaml", config.Default())
//
// Validation errors are *cstmerrors.Error values of type config carrying
// the offending key.
package config
