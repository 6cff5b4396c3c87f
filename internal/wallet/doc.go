// Package wallet implements the batched-call request builder: it normalizes
// heterogeneous call descriptions (raw transaction primitives or structured
// contract-function invocations) into the canonical wire representation,
// resolves the target chain for every call, assembles a single batch
// envelope, and submits it atomically through an external wallet agent.
// The package performs no execution and keeps no state between invocations.
package wallet
