/*
Package provider contains the concrete generation backends behind the
dispatcher's provider set.

Synchronous adapters (Gemini, the local diffusion subprocess, the
camera-angle service) resolve inside Generate. Asynchronous adapters
(Veo, Fal Kling) submit a job, return immediately, and record the
terminal outcome in a Tracker keyed by node id; the Tracker implements
the status-check interface the recovery monitor polls, so completions
survive even when the dispatching caller is gone.

Adapters surface backend error messages verbatim where safe; the
dispatcher puts them on the node for the user to see and retry.
*/
package provider
