// Package database stores scan history in SQLite.
//
// Each saved scan keeps its complete report as JSON plus one row per
// finding, so that later scans of the same root can be compared and a
// container can be traced across scans by its fingerprint. The database is
// only written when history is requested explicitly.
package database
