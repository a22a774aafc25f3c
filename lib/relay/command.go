package relay

import "fmt"

// Command is a relay command byte.
type Command uint8

const (
	CmdBegin     Command = 1
	CmdData      Command = 2
	CmdEnd       Command = 3
	CmdConnected Command = 4
	CmdSendme    Command = 5
	CmdExtend    Command = 6
	CmdExtended  Command = 7
	CmdTruncate  Command = 8
	CmdTruncated Command = 9
	CmdDrop      Command = 10
	CmdResolve   Command = 11
	CmdResolved  Command = 12
	CmdBeginDir  Command = 13
	CmdExtend2   Command = 14
	CmdExtended2 Command = 15
	CmdXoff      Command = 43
	CmdXon       Command = 44
)

var commandNames = map[Command]string{
	CmdBegin:     "BEGIN",
	CmdData:      "DATA",
	CmdEnd:       "END",
	CmdConnected: "CONNECTED",
	CmdSendme:    "SENDME",
	CmdExtend:    "EXTEND",
	CmdExtended:  "EXTENDED",
	CmdTruncate:  "TRUNCATE",
	CmdTruncated: "TRUNCATED",
	CmdDrop:      "DROP",
	CmdResolve:   "RESOLVE",
	CmdResolved:  "RESOLVED",
	CmdBeginDir:  "BEGIN_DIR",
	CmdExtend2:   "EXTEND2",
	CmdExtended2: "EXTENDED2",
	CmdXoff:      "XOFF",
	CmdXon:       "XON",
}

func (c Command) String() string {
	if name, ok := commandNames[c]; ok {
		return name
	}
	return fmt.Sprintf("UNKNOWN(%d)", uint8(c))
}

// Known reports whether c is a command this package understands.
func (c Command) Known() bool {
	_, ok := commandNames[c]
	return ok
}

// CountsTowardWindows reports whether sending a message with this command
// consumes congestion window. Only DATA does.
func (c Command) CountsTowardWindows() bool {
	return c == CmdData
}
