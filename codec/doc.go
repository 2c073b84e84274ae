/*
Package codec maps application values to the single string representation a broker
transport accepts, and recovers the original shape on the consuming side.

Outbound: []byte becomes base64, string passes through, anything else becomes JSON.

Inbound, the wire string carries no type tag unless the producer opted into the
envelope (see Wrap). Decode therefore uses, in order: the transport content type when
one was delivered; the envelope when DecodeOptions.Typed is set; a strict base64 decode
when DecodeOptions.ExpectBinary is set; a JSON parse when the body looks like a JSON
object or array; and finally the raw string. A plain string that happens to be a JSON
object, or valid base64 while ExpectBinary is set, is indistinguishable from the typed
shape and decodes as that shape. Decode never fails.
*/
package codec
