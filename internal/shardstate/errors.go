package shardstate

import "errors"

var errNoLoginData = errors.New("shardstate: no pending login_data for serial key")
