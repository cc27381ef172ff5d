// Package textutil contains the pure string helpers used to prepare ticket
// comments for entity detection and to parse the approved entity list.
//
// Every function is total: there are no error cases and no side effects.
package textutil
