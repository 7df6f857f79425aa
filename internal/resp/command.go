package resp

// Command is one inbound request: a RESP array of bulk strings, the only
// shape a client may send (spec §4.A). Args[0] is the command name; the
// slices borrow directly into the connection's input buffer.
type Command struct {
	Args [][]byte
}

// TryParseCommand decodes one command frame starting at buf[cursor:]. It
// is the reactor's entry point into the codec: a thin shape-validation
// layer over TryParseFrame that rejects anything that isn't a top-level
// array of bulk strings.
func TryParseCommand(buf []byte, cursor int, limits Limits) (Command, int, error) {
	f, newCursor, err := TryParseFrame(buf, cursor, limits)
	if err != nil {
		return Command{}, cursor, err
	}
	if f.Type != Array || f.Null {
		return Command{}, cursor, ErrUnexpectedType
	}
	args := make([][]byte, len(f.Items))
	for i, item := range f.Items {
		if item.Type != BulkString || item.Null {
			return Command{}, cursor, ErrUnexpectedType
		}
		args[i] = item.Bulk
	}
	return Command{Args: args}, newCursor, nil
}
