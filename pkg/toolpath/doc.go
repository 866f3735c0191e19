// Package toolpath turns ordered point curves into an extrusion motion
// program and writes it as G-code.
//
// Each curve point carries a layer height and a flow multiplier. Filament
// use per printed segment is
//
//	length * flow * (layer*nozzle + pi*(layer/2)^2) / (pi*(filament/2)^2)
//
// In retract mode the head lifts to the highest Z seen so far plus a hop
// height between curves, and the filament is pulled back and pushed again
// either with explicit extruder moves or with firmware G10/G11.
package toolpath
