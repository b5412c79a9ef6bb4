// Package protocol implements the HC-05 AT command framing and the bounded
// byte queues that sit between the application and the serial channel.
package protocol

// Protocol constants
const (
	Terminator     = "\r\n" // every AT frame and response line ends with CR LF
	CommandPrefix  = "AT"
	MaxCommandSize = 256 // largest encoded frame, terminators included

	DefaultNameLength = 32 // HC-05 firmware limit for the friendly name
	DefaultPinLength  = 4  // pairing code length expected by the module
)

// Response tokens
const (
	ResponseOK     = "OK"
	ResponseOKLine = ResponseOK + Terminator
	ResponseError  = "ERROR"
	ResponseFail   = "FAIL"
)
