/*
Package nats carries intents and release projections over NATS.

Intents are received on a queue subscription, so that several
provisioners can share the subject and each intent reaches one of
them. Projections are published as JSON.
*/
package nats
