/*
Package session serializes concurrent turns of the same conversation thread.

The Manager keeps a reference-counted mutex per thread so that only one turn at a
time reads, executes and commits a given thread inside this process. An optional
DistributedLocker extends that guarantee across replicas that share a checkpoint
store.
*/
package session
