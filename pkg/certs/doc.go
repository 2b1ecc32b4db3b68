/*
Package certs manages the TLS certificate served by the tempo receivers.

Each pass first resolves the effective certificate, then renews it if due:

	Resolve  relation payload (Present)
	         -> leader-published certificate (local issuers)
	         -> retained certificate, only while the relation is Invalid
	            and the certificate has not expired ("renewal pending")

	Renew    leader only; due when the relation is Invalid or the renewal
	         window is reached (RenewalFraction of validity elapsed)

Issuers:

  - RelationIssuer publishes a CSR on the certificates relation; the signed
    chain arrives later as relation data
  - SelfSignedIssuer signs with a local root CA kept in storage
  - ACMEIssuer obtains certificates over ACME HTTP-01 with lego

Private keys live in a KeyStore and are referenced as "file:<name>". The
leader publishes new keys to peers together with the certificate, and each
unit syncs them into its own KeyStore before applying.
*/
package certs
