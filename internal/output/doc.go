// Package output renders harness reports as a text table, JSON or YAML.
package output
