// Package config holds the controller configuration.
//
// Values are layered with the following precedence (highest first):
//  1. Command-line flags
//  2. Environment variables prefixed with HTTP_MOCKER_
//  3. A YAML config file
//  4. Built-in defaults
//
// Environment values are coerced the same way for every key: an integer is
// tried first, then a float, then a boolean (yes/true/on, no/false/off), and
// finally the raw string. A coerced value must fit the field it targets.
package config
