// Copyright (c) Peter Newcomb. All rights reserved.
// Licensed under the MIT License.

// Package ssv implements a Stream Scheduler Variable: a bounded,
// rate-adaptive conduit between one or more producer goroutines and a
// single consumer. A producer is any Producer[T] -- a function that yields
// values one at a time until it runs out or errors -- and the scheduler
// decides, according to one of four scheduling disciplines, how many
// workers to run concurrently and in what order their yields reach the
// consumer.
//
// The four disciplines are Async (LIFO, depth-first), WAsync (FIFO,
// breadth-first), Ahead (strictly reordered back to submission order via a
// token protocol), and Parallel (unconditional eager dispatch with no work
// queue at all). Gather and Wait are the package's two top-level entry
// points: Gather collects every yielded value into a slice, Wait discards
// them and reports only completion or failure: the first worker error
// cancels the remaining workers and is returned combined with any later ones.
//
// Ssv also supports a paced mode, selected by WithStreamRate, in which the
// scheduler measures the average per-worker yield latency and continuously
// resizes the worker pool to track a target rate rather than simply keeping
// as many workers busy as maxWorkers allows.
package ssv
