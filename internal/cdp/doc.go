// Package cdp implements the host side of the companion debug protocol
// spoken by the interpreter's companion script over its standard streams.
//
// # Wire format
//
// Every message is one JSON object terminated by a newline. Three message
// types exist:
//
//	{"seq":1,"type":"request","command":"evaluate","arguments":{"expression":"1+1"}}
//	{"seq":4,"type":"response","requestSeq":1,"success":true,"command":"evaluate","message":"","body":{"result":"2"}}
//	{"seq":5,"type":"event","event":"output","body":{"category":"stdout","output":"hi\n"}}
//
// Lines that are not JSON objects are skipped, so stray prints from the
// interpreter cannot corrupt the stream.
//
// # Correlation
//
// Conn assigns each request a sequence number from a counter starting at 1
// and parks the caller until the response carrying the matching requestSeq
// arrives, its context is cancelled, or the connection is torn down.
// Responses with no waiting caller are dropped.
//
//	conn := cdp.NewConn(proc.Stdout, proc.Stdin)
//	conn.Start()
//	if err := conn.Initialize(ctx); err != nil {
//	    return err
//	}
//	resp, err := conn.SendRequest(ctx, cdp.Request{
//	    Command:   "evaluate",
//	    Arguments: map[string]any{"expression": "1+1"},
//	})
//
// # Teardown
//
// Close, or end of input on the read side, tears the connection down exactly
// once. Every caller still waiting receives ErrCancelled; requests issued
// afterwards fail with ErrDisconnected.
package cdp
