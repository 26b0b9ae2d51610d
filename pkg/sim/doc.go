// Package sim generates plausible thermography readings without hardware.
//
// Sensor mimics a microcontroller with eight contact thermometers: a shared
// body baseline plus small per-sensor noise, rounded to the 0.1 °C resolution
// of the thermometers. Scenario produces readings shaped to land in a given risk
// tier and backs the simulated image analysis on the server.
//
// Both take an injectable *rand.Rand so tests are deterministic.
package sim
