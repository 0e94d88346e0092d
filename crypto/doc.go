/*
Package crypto provides the basis for secure communication between replicas. It makes a strict
mutual TLS configuration available that requires every replica to present a certificate signed
by the shared internal root certificate.
*/
package crypto
