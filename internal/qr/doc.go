// Package qr adapts third-party QR libraries to the admission collaborator
// interfaces: skip2/go-qrcode renders codes and makiuchi-d/gozxing reads them.
package qr
