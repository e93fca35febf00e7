/*
SPDX-License-Identifier: Apache-2.0
*/

package main

import (
	"log"
	"os"

	"github.com/hyperledger/fabric-chaincode-go/shim"
	"github.com/hyperledger/fabric-contract-api-go/contractapi"

	"herbtrace-chaincode/internal/config"
	"herbtrace-chaincode/internal/provenance"
	"herbtrace-chaincode/internal/sustainability"
)

// newChaincode assembles the provenance and sustainability contracts.
// Provenance is the default contract, so its transactions can be invoked
// without the "provenance:" prefix.
func newChaincode(cfg config.Config, logger *log.Logger) (*contractapi.ContractChaincode, error) {
	prov := provenance.NewContract(cfg, logger)
	sust := sustainability.NewContract(prov.Evaluator, cfg.EnforceRoles, logger)

	chaincode, err := contractapi.NewChaincode(prov, sust)
	if err != nil {
		return nil, err
	}
	chaincode.DefaultContract = provenance.ContractName
	chaincode.Info.Title = "herbtrace"
	chaincode.Info.Version = "1.0.0"
	return chaincode, nil
}

func main() {
	logger := log.New(os.Stdout, "[HERBTRACE] ", log.LstdFlags|log.Lshortfile)

	cfg, err := config.Load()
	if err != nil {
		logger.Fatalf("Error loading configuration: %v", err)
	}

	chaincode, err := newChaincode(cfg, logger)
	if err != nil {
		logger.Fatalf("Error creating chaincode: %v", err)
	}

	if !cfg.External() {
		logger.Printf("Starting chaincode (collection policy %s)", cfg.CollectionPolicy)
		if err := chaincode.Start(); err != nil {
			logger.Fatalf("Error starting chaincode: %v", err)
		}
		return
	}

	server := &shim.ChaincodeServer{
		CCID:     cfg.CCID,
		Address:  cfg.ServerAddress,
		CC:       chaincode,
		TLSProps: shim.TLSProperties{Disabled: cfg.TLSDisabled},
	}
	logger.Printf("Starting chaincode service %s on %s (collection policy %s)", cfg.CCID, cfg.ServerAddress, cfg.CollectionPolicy)
	if err := server.Start(); err != nil {
		logger.Fatalf("Error starting chaincode service: %v", err)
	}
}
