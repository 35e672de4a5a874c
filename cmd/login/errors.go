package main

import "errors"

var errNoAccountForConn = errors.New("login: no account associated with this connection")
