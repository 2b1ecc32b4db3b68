/*
Package applier makes the tracing workload run a synthesized configuration.

Apply compares the hash of the WorkloadConfig with the recorded
AppliedState and returns without side effects when they match. Otherwise:

 1. render the tempo configuration and log forwarding layer
 2. write each file that differs from disk atomically, and the TLS
    material when TLS is enabled (removing it when not)
 3. restart the workload and wait for readiness, only if a file changed
 4. record the new AppliedState

A failure in step 2 restores every file already written. Failures in
steps 3 and 4 leave the AppliedState untouched so the next pass retries.
*/
package applier
