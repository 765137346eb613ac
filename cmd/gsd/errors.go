package main

import "errors"

var errArgs = errors.New("wrong number of arguments")
