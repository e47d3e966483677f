// Package handlerdata stores per-route JSON payloads and injects them into
// requests.
//
// Handler code reads the payload for the current request with From or Value:
//
//	func hello(w http.ResponseWriter, r *http.Request) {
//		data := handlerdata.From(r)
//		handlerdata.WriteJSON(w, http.StatusOK, data)
//	}
//
// Interpreted handlers import this package by its regular import path; the
// Symbols table exposes it to the interpreter.
package handlerdata
