package logging

import "os"

var zapStdout = os.Stdout
