package config

import "path/filepath"

const pidFileName = "apex.pid"

// Layout is where apex keeps its files under a data dir. The server's PID
// file and the CLI's signed-in session follow storage.data_dir, so moving it
// moves both.
type Layout struct {
	Dir string
}

func (c Config) Layout() Layout { return Layout{Dir: c.Storage.DataDir} }

func (l Layout) PIDFile() string { return filepath.Join(l.Dir, pidFileName) }

// SessionDir holds the CLI session cache.
func (l Layout) SessionDir() string { return l.Dir }
