package database

import _ "embed"

// Schema is the DDL for the tables this service reads and writes
//
//go:embed schema.sql
var Schema string
